package main

func load() {}

//flatprof:profile limit=1s
func main() {
	load()
}
