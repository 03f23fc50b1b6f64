// Package compose projects the active variant set into a Docker
// Compose file: one service per variant, each building from its
// rendered Dockerfile and carrying the drydock management labels.
//
// The projection is a development convenience emitted alongside the
// Dockerfiles; nothing in the CLI drives Compose at runtime. Output is
// deterministic: struct fields marshal in declaration order and
// yaml.v3 sorts the service map keys.
package compose
