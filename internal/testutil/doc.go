// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing documents, agent results and
// scripted completion backends. They are not intended for production usage.
package testutil
