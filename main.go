package main

import "grimm.is/nftctl/cmd"

func main() {
	cmd.Execute()
}
