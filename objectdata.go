// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package graphcodec

import "fmt"

// ObjectData stands in for a decoded value whose wire descriptor has no
// local counterpart. It keeps everything the stream carried — descriptor,
// surrogate payload, converter string, custom bag, member values, container
// contents — so a later pipeline can still operate on the graph.
//
// Keys decoded into MapKeys went through no local hash table; whether two
// equal-but-distinct keys of the producer stay distinct is up to whatever
// container the caller rebuilds.
type ObjectData struct {
	TypeData        *TypeData
	SurrogateObject interface{}
	ConverterString string
	Info            []NamedValue // custom-serialization bag
	Members         []NamedValue
	List            []interface{}
	MapKeys         []interface{}
	MapValues       []interface{}
	Lengths         []int // array shape, row-major
	IsReadOnly      bool
}

// Member returns the decoded value of the named member.
func (od *ObjectData) Member(name string) (interface{}, bool) {
	for _, nv := range od.Members {
		if nv.Name == name {
			return nv.Value, true
		}
	}
	return nil, false
}

// InfoValue returns the named entry of the custom-serialization bag.
func (od *ObjectData) InfoValue(name string) (interface{}, bool) {
	for _, nv := range od.Info {
		if nv.Name == name {
			return nv.Value, true
		}
	}
	return nil, false
}

func (od *ObjectData) String() string {
	name := "?"
	if od.TypeData != nil {
		name = od.TypeData.FullName
	}
	return fmt.Sprintf("ObjectData(%s, %d members)", name, len(od.Members))
}
