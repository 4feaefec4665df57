// Command snapoff serves server-driven UI components and their dev lab.
package main

func main() {
	execute()
}
