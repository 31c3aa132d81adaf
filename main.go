package main

import "github.com/storefrontlabs/pricewatch/cmd"

func main() {
	cmd.Execute()
}
