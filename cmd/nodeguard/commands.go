package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

func runStatus(f *StatusFlags) error {
	c := NewAPIClient(f.APIUrl, f.APITimeout)
	if !c.IsReachable() {
		return fmt.Errorf("agent not reachable at %s - start it with 'nodeguard serve'", c.base)
	}
	raw, err := c.Status(f.Name)
	if err != nil {
		return err
	}
	printJSON(raw)
	return nil
}

func runStart(f *StartFlags) error {
	c := NewAPIClient(f.APIUrl, f.APITimeout)
	if !c.IsReachable() {
		return fmt.Errorf("agent not reachable at %s - start it with 'nodeguard serve'", c.base)
	}
	if err := c.StartProgram(f.Name); err != nil {
		return err
	}
	fmt.Printf("started %s\n", f.Name)
	return nil
}

func runStop(f *StopFlags) error {
	c := NewAPIClient(f.APIUrl, f.APITimeout)
	if !c.IsReachable() {
		return fmt.Errorf("agent not reachable at %s - start it with 'nodeguard serve'", c.base)
	}
	if err := c.StopProgram(f.Name); err != nil {
		return err
	}
	fmt.Printf("stopped %s\n", f.Name)
	return nil
}

func printJSON(raw json.RawMessage) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, _ = os.Stdout.Write(raw)
		fmt.Println()
		return
	}
	fmt.Println(buf.String())
}
