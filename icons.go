package main

import _ "embed"

var (
	//go:embed assets/icon.png
	iconData []byte

	//go:embed assets/icon_connected.png
	iconDataConnected []byte

	//go:embed assets/icon_error.png
	iconDataError []byte

	//go:embed assets/icon_stopped.png
	iconDataStopped []byte

	//go:embed assets/icon_busy.png
	iconDataBusy []byte
)
