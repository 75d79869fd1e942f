package types

// Version is the project version reported by the CLI. The bridge protocol
// carries its own version.
const Version = "0.1.0"
