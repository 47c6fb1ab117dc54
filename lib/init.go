package lib

import (
	//source
	_ "cirrus/lib/component/source/kafka"
	_ "cirrus/lib/component/source/mock"
	_ "cirrus/lib/component/source/spooldir"

	//sink
	_ "cirrus/lib/component/sink/doris"
	_ "cirrus/lib/component/sink/echo"
)
