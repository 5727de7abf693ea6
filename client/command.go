package client

// command pairs an optimistic local mutation with its compensation. apply
// runs immediately; if the network call rejects, compensate restores the
// pre-mutation snapshot. On success nothing is rolled back even if the
// corresponding push event never arrives: REST success is authoritative.
type command struct {
	apply      func()
	compensate func()
}

func runCommand(cmd command, call func() error, onError func(error)) error {
	cmd.apply()
	if err := call(); err != nil {
		cmd.compensate()
		if onError != nil {
			onError(err)
		}
		return err
	}
	return nil
}
