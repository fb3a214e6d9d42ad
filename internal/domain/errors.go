package domain

import "errors"

var (
	// ErrObjectNotFound — объекта нет в хранилище.
	ErrObjectNotFound = errors.New("object not found")

	// ErrSourceNotFound — исходника для оптимизации нет в хранилище.
	ErrSourceNotFound = errors.New("source image not found")

	// ErrDecodeOrEncode — битое или неподдерживаемое изображение.
	ErrDecodeOrEncode = errors.New("image decode or encode failed")

	ErrStoreWrite   = errors.New("object store write failed")
	ErrRecordUpdate = errors.New("photo record update failed")

	ErrPhotoNotFound = errors.New("photo not found")
	ErrTagNotFound   = errors.New("tag not found")
	ErrTagExists     = errors.New("tag already exists")
)
