// Command adbview browses Android devices through an ADB server.
package main

func main() {
	Execute()
}
