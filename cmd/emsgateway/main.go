// Command emsgateway runs the EMS GraphQL gateway and its reference subgraphs.
package main

import "github.com/AdityaSrivastav5/ems-plus-plus/cmd/emsgateway/cmd"

func main() {
	cmd.Execute()
}
