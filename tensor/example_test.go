// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"fmt"

	"github.com/born-ml/singleshot/tensor"
)

func ExampleInfo_Allocate() {
	info := &tensor.Info{}
	if err := info.Add(tensor.Uint8, 3, 224, 224); err != nil {
		panic(err)
	}

	data, err := info.Allocate()
	if err != nil {
		panic(err)
	}
	buf, _ := data.Tensor(0)
	fmt.Println(info, len(buf))
	// Output: uint8[3:224:224:1] 150528
}

func ExampleParseInfo() {
	info, err := tensor.ParseInfo("float32,int64", "10,2:5")
	if err != nil {
		panic(err)
	}
	for i := 0; i < info.Count(); i++ {
		size, _ := info.ByteSize(i)
		fmt.Println(i, size)
	}
	// Output:
	// 0 40
	// 1 80
}
