// Package api defines the JSON wire types shared by the gateway contracts:
// file upload and removal, turn dispatch, the narration status channel, and
// conversation history retrieval.
package api
