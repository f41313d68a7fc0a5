package store

import "errors"

// ErrNoSuchSession is returned by WithSession when the session is not
// resident in memory; callers use this to trigger a rehydrate-with-retry
// rather than surfacing it directly.
var ErrNoSuchSession = errors.New("no_such_session")

// ErrRoomCodeTaken mirrors apperr.ErrRoomCodeTaken at the store layer so
// World has no import-cycle dependency on apperr.
var ErrRoomCodeTaken = errors.New("room_code_taken")
