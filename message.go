package main

const (
	MsgHealthy = "API is running"

	MsgMissingFile = "No image file uploaded. Send the image as the multipart form field \"file\"."

	MsgMissingContentType = "The uploaded file has no content type. Upload a JPEG or PNG image."

	MsgNotAnImage = "The uploaded file is not an image (content type %q). Upload a JPEG or PNG image."

	MsgTooLarge = "The uploaded image is larger than the %d byte limit."

	MsgDecodeFailed = "The uploaded image could not be decoded."

	MsgAdvisoryDisabled = "Disease advisory is not configured on this server."
)
