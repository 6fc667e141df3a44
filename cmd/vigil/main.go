// Vigil - cloud security event monitoring and automated response
package main

func main() {
	Execute()
}
