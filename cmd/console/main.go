package main

import (
	"log"
	"os"

	"rvm/pkg/repl"
	"rvm/pkg/utils"
)

// console [defs.rc ...]
//
// Starts the Reduced C console. Each file argument is loaded as a set of
// function definitions before the first prompt.
func main() {
	session := repl.NewSession()

	for _, filename := range os.Args[1:] {
		fullPath, _, err := utils.GetPathInfo(filename)
		if err != nil {
			log.Fatalf("Failed to resolve %s: %v", filename, err)
		}
		sourceBytes, err := os.ReadFile(fullPath)
		if err != nil {
			log.Fatalf("Failed to read source file: %v", err)
		}
		reply, err := session.Eval(string(sourceBytes))
		if err != nil {
			log.Fatalf("Failed to load %s: %v", fullPath, err)
		}
		log.Printf("loaded %d definitions from %s", len(reply.Defined), fullPath)
	}

	os.Exit(repl.RunSession(session))
}
