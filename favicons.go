/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

func getFavicon() string {
	return `<link rel="icon" href="data:image/svg+xml,<svg xmlns=%22http://www.w3.org/2000/svg%22 viewBox=%220 0 16 16%22><text y=%2214%22>♪</text></svg>">
	<meta name="theme-color" content="#ffffff">`
}
