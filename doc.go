// Package mcp implements the Model Context Protocol (MCP), providing a framework for integrating
// Large Language Models (LLMs) with external data sources and tools. This implementation follows
// the official specification from https://spec.modelcontextprotocol.io/specification/.
//
// The package provides a Server for exposing prompts, resources, and tools to LLM applications,
// a Client for consuming them, and two interchangeable transports: newline-delimited JSON-RPC
// over standard input/output, and Server-Sent Events over HTTP. Servers implement the
// PromptServer, ResourceServer, and ToolServer interfaces for the capabilities they support,
// and clients access them through typed methods after a Connect handshake.
package mcp
