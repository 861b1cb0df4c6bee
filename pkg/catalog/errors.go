package catalog

import "errors"

// ErrNotFound is returned when a product id is missing so HTTP handlers can respond with 404.
var ErrNotFound = errors.New("catalog product not found")
