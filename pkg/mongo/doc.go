// Package mongo opens the MongoDB connection behind the optional usage
// counter backend in pkg/mongostore. It covers connection setup with retries
// and a connectivity probe; everything else goes through the driver directly.
package mongo
