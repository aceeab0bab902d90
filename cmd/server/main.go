package main

import (
	"github.com/dwarvesf/settlement-backend/internal/server"
)

// @title Settlement Backend API
// @version 1.0
// @description Verifies on-chain deposits and pays each one out at most once.
// @BasePath /api/v1
func main() {
	server.Init()
}
