package core

// Exit codes signal why Init could not bring up the core. Anything other
// than ExitSuccess indicates a fatal failure the caller must not ignore.
const (
	ExitSuccess           = 0 // Init completed; never returned as a failure.
	ExitErrorConfigAccess = 1 // Error accessing the config file.
	ExitErrorConfigParse  = 2 // Error parsing the config file.
	ExitErrorConfigWrite  = 3 // Error persisting the config file.
	ExitErrorIdentity     = 4 // Error generating or loading the peer identity.
	ExitErrorDownloadDir  = 5 // Configured download directory is not usable.
)
