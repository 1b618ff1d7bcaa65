// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package onebot

import (
	"encoding/json"
	"testing"
)

func FuzzIntUnmarshal(f *testing.F) {
	f.Add([]byte(`123`))
	f.Add([]byte(`"456"`))
	f.Add([]byte(`""`))
	f.Add([]byte(`null`))
	f.Add([]byte(`"-9223372036854775808"`))
	f.Add([]byte(`99999999999999999999`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var i Int
		_ = i.UnmarshalJSON(data)
	})
}

func FuzzEventDecode(f *testing.F) {
	f.Add([]byte(`{"post_type":"message","message_type":"group","sub_type":"normal","message":[{"type":"text","data":{"text":"x"}}]}`))
	f.Add([]byte(`{"post_type":"meta_event","meta_event_type":"heartbeat","status":{"online":true,"good":true},"interval":5000}`))
	f.Add([]byte(`{"message":"cq string"}`))
	f.Add([]byte(`{}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var evt Event
		if json.Unmarshal(data, &evt) != nil {
			return
		}
		for _, item := range evt.Message {
			var img ImageData
			_ = item.DecodeData(&img)
			var fwd ForwardData
			_ = item.DecodeData(&fwd)
		}
	})
}
