package types

// Version is the canonical project version. All components share a single
// version; the CLI reports it alongside the build commit.
const Version = "0.4.0"
