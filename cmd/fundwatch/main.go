package main

import "os"

func main() {
	if err := newRootCmd(defaultOptions()).Execute(); err != nil {
		os.Exit(1)
	}
}
