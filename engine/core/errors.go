package core

import (
	"errors"
)

var (
	ErrSwapchainBooting    = errors.New("swapchain resized or recreated, booting")
	ErrSwapchainOutOfDate  = errors.New("swapchain out of date")
	ErrNoDevice            = errors.New("no device supporting the graphics API was found")
	ErrNoGraphicsQueue     = errors.New("no queue family supports both graphics and present")
	ErrFeatureNotSupported = errors.New("required device feature not supported")
	ErrNoMemoryType        = errors.New("no memory type matches the requested properties")
	ErrCapacityExceeded    = errors.New("capacity exceeded")
	ErrNotInitialized      = errors.New("not initialized")
	ErrUnknown             = errors.New("unknown")
)
