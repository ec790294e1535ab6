//go:build rp2040 && standalone

package main

func init() {
	standaloneBuild = true
}
