// Command review is a terminal review desk over the mock record API.
package main

func main() {
	Execute()
}
