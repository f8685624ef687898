package utils_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/signalsim/utils"
)

func TestFind(t *testing.T) {
	data := []string{"a", "b", "c"}
	dataMap := map[int32]string{1: "a", 2: "b", 3: "c"}

	all, failed := utils.Find(dataMap, data, nil)
	assert.Equal(t, data, all)
	assert.Nil(t, failed)

	got, failed := utils.Find(dataMap, data, []int32{3, 9, 1})
	assert.Equal(t, []string{"c", "a"}, got)
	assert.Equal(t, []int32{9}, failed)
}
