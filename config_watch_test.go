package fieldbus

import (
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMonitorConfig(t *testing.T) {
	tf, err := ioutil.TempFile(".", "")
	if err != nil {
		t.Fatal(err)
	}

	defer func() {
		_ = os.Remove(tf.Name())
	}()

	initial := _globalConfiguration

	defer func() {
		_globalConfiguration = initial
	}()

	go MonitorConfig(zap.NewExample().Sugar(), tf.Name(), &Configuration{})

	time.Sleep(time.Millisecond * 200)

	if _, err = tf.Write([]byte("buses:\n plant:\n  transport: tcp\n  address: localhost:5020\n")); err != nil {
		t.Fatal(err)
	}

	if err = tf.Close(); err != nil {
		t.Fatal(err)
	}

	time.Sleep(time.Millisecond * 200)
	assert.Equal(t, "localhost:5020", globalConfiguration().Buses["plant"].Address)
}
