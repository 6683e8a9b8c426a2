// Package convcache keeps a small local SQLite mirror of the conversation
// listing so the sidebar can render before the gateway answers.
package convcache
