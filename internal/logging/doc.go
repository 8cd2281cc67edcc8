// Package logging provides file-based structured logging with rotation
// for codeqa. Logs are written as JSON so stdout stays clean for command
// output and for the MCP stdio transport.
package logging
