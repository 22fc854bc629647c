// Package main hosts the cara CLI.
//
// Commands manage provider credentials, print the CARA deadline schedule for
// a closing-meeting date, and preview or generate section drafts for items of
// a report file. `cara doctor` checks the local setup and `cara logs` reads
// the JSON log, usually filtered to one failed request.
//
// Configuration, the logger, and the credential store are resolved once per
// invocation by commandContext; subcommands only parse flags and render
// output.
package main
