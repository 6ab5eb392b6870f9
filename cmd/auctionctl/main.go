package main

import "github.com/shinyyama/auction-backend/cmd/auctionctl/commands"

func main() {
	commands.Execute()
}
