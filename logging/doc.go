/*
Package logging implements the application log setup of the gateway.

# Application Log

The application log uses the logrus package:

https://github.com/sirupsen/logrus

To send messages to the application log, import logrus and use its
methods. Example:

	import log "github.com/sirupsen/logrus"

	func doSomething() {
		log.Errorf("nothing to do")
	}

During startup initialization, it is possible to redirect the log output
from the default /dev/stderr to another file, to set a common prefix for
each log entry, to switch to JSON output and to set the minimum level.

# Access Log

The access log prints one line per request in the Apache combined log
format, extended with the duration in milliseconds, the requested host
and the name of the API:

	127.0.0.1 - - [10/Oct/2000:13:55:36 -0700] "GET /pizzashack/1.0.0/menu HTTP/1.1" 200 2326 "" "curl/8.0" 42 localhost PizzaShackAPI

It can be redirected to another output or disabled.

# Logger

Components that need their log output verified in tests accept a Logger
instead of calling logrus directly. The loggingtest package provides an
implementation that records the entries.
*/
package logging
