package tool

import (
	"github.com/bantam-dev/bantam/pkg/repository"
)

// Client contains shared resources that tools can use
type Client struct {
	Repo repository.Repository
}
