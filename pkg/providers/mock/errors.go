package mock

import "errors"

var errScripted = errors.New("mock recognizer: scripted failure")
