// Package cli implements the `nuxt start` command: it validates user input,
// checks that the build output exists and hands over to the application
// server. It translates failures into errors that carry process exit codes.
package cli
