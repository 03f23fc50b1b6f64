// Package docker wraps the Docker Engine SDK client and the docker CLI
// for building images and running verification containers.
//
// All state lives on Docker objects: images carry the recipe digest
// they were built from, containers carry the run metadata. Labels are
// the sole persistence mechanism; there is no state file. The package
// also handles Docker socket detection across platforms.
package docker
