package main

// Version is set at build time via -ldflags "-X main.Version=...". It
// defaults to "dev" for local builds.
var Version = "dev"
