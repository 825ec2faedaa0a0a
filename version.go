package agentruntime

// Version is reported to MCP peers and by the health endpoint.
const Version = "0.1.0"
