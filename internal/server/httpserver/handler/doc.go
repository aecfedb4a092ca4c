// Package handler implements the admin API endpoints: peer and
// entity inspection, chat history, stored profiles, and kicks.
package handler
