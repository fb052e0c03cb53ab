package version

// Version is the agent build version. Overridden at build time via
// -ldflags "-X tidywatch/version.Version=...".
var Version = "0.3.0"

// MinimalVersion is the oldest agent version the hub still accepts.
var MinimalVersion = "0.2.0"
