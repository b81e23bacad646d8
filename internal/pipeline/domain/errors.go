package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job is unknown or its TTL has passed
	ErrJobNotFound = errors.New("job not found")

	// ErrMissingImageStats is returned when parse/validate runs without the
	// image statistics produced by the resolver step
	ErrMissingImageStats = errors.New("image stats missing: image resolution did not run")

	// ErrNoImages is returned when a request carries no usable image references
	ErrNoImages = errors.New("at least one image is required")

	// ErrTooManyImages is returned when a request exceeds the per-job image limit
	ErrTooManyImages = errors.New("too many images")

	// ErrImageTooLarge is returned when a decoded image exceeds the size limit
	ErrImageTooLarge = errors.New("image exceeds maximum size")

	// ErrUnsupportedImageType is returned for mime types outside the allow-list
	ErrUnsupportedImageType = errors.New("unsupported image type")
)
