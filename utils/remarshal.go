package utils

import (
	"encoding/json"
)

// Remarshal converts input into output going through its JSON
// representation, so field mapping honors json tags.
func Remarshal(input interface{}, output interface{}) error {
	b, err := json.Marshal(input)
	if nil != err {
		return err
	}
	return json.Unmarshal(b, output)
}
