package domain

// Container is what the runtime collaborator reports about a labelled container.
type Container struct {
	ID     string
	Name   string
	Labels map[string]string
	Env    map[string]string

	// Mounts holds the destination paths of the container's mounts.
	Mounts []string
}

type ExecResult struct {
	ExitCode int
	Stderr   string
}
