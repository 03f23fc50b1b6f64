// Package verify implements the smoke test that a built variant image
// actually serves the application it was rendered for.
//
// Verification runs two gates. The static gate inspects the image
// configuration without starting anything: the process user, working
// directory, exposed ports and launch command must match what the
// variant's Dockerfile produces. The runtime gate starts a labeled
// container on an allocated host port, waits for the TCP listener,
// optionally probes the HTTP health path, and confirms the application
// files are owned by the non-root user.
//
// Check failures are recorded in the Report; errors are reserved for
// infrastructure problems such as an unreachable daemon or a missing
// image.
package verify
