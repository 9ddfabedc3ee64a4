package discovery

import (
	"errors"

	"github.com/moti-malka/gl2gh-sub000/internal/forgeclient"
)

func errAsForge(err error) (*forgeclient.Error, bool) {
	var fe *forgeclient.Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
