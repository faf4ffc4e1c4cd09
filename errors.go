package hevcenc

import "errors"

// Errors returned by the encoder.
var (
	// ErrInvalidOptions is returned when encoder options are out of range.
	ErrInvalidOptions = errors.New("hevcenc: invalid options")

	// ErrPictureSize is returned when a picture does not match the size the
	// encoder was created for, or its sample buffer is too short.
	ErrPictureSize = errors.New("hevcenc: picture size mismatch")

	// ErrNilPicture is returned when Encode is called without a picture.
	ErrNilPicture = errors.New("hevcenc: nil picture")
)
